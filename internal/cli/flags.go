package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagDef defines a command-line flag bound to a viper configuration key.
// Defaults come from the embedded configuration, so flag defaults are only
// shown in help output.
type (
	flagType interface {
		string | int | bool
	}

	FlagDef[T flagType] struct {
		Name         string
		ViperKey     string
		DefaultValue T
		Description  string
	}
)

// DeclareFlags declares multiple flags on fs and binds them to viper configuration keys.
func DeclareFlags[T flagType](fs *pflag.FlagSet, flags []FlagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(fs, flag.Name, flag.ViperKey, flag.DefaultValue, flag.Description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single flag and binds it to a viper configuration key.
// The type parameter T determines the flag type (string, int, or bool).
func declareFlag[T flagType](fs *pflag.FlagSet, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		fs.String(flagName, any(defaultValue).(string), description)
	case int:
		fs.Int(flagName, any(defaultValue).(int), description)
	case bool:
		fs.Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, fs.Lookup(flagName))
}
