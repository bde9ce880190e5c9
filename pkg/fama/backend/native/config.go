package native

import "fmt"

// Config describes one native library backend.
type Config struct {
	Name            string `mapstructure:"name"`
	Library         string `mapstructure:"library"`
	Symbol          string `mapstructure:"symbol"`
	BatchSymbol     string `mapstructure:"batchSymbol"`
	FreeSymbol      string `mapstructure:"freeSymbol"`
	FreeArraySymbol string `mapstructure:"freeArraySymbol"`
	// PassIndent sends the configured indent (0 for tabs) as the last argument.
	PassIndent bool `mapstructure:"passIndent"`
}

func (c Config) withDefaults() Config {
	if c.FreeSymbol == "" {
		c.FreeSymbol = "FreeString"
	}
	if c.FreeArraySymbol == "" {
		c.FreeArraySymbol = "FreeStringArray"
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("native backend requires a name")
	case c.Library == "":
		return fmt.Errorf("native backend '%s' requires a library path", c.Name)
	case c.Symbol == "":
		return fmt.Errorf("native backend '%s' requires a symbol", c.Name)
	}
	return nil
}
