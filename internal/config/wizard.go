package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard interactively fills in a configuration
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for each setting, starting from base. An empty answer keeps the
// current value.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := *base
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== Hive Configuration ===")
	fmt.Fprintln(w.out)

	for {
		provider, err := w.ask("Provider (openai/anthropic)", cfg.Provider.Provider)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Provider.Provider = provider
		break
	}

	for {
		key, err := w.ask("API key", mask(cfg.Provider.APIKey))
		if err != nil {
			return nil, err
		}
		if key == mask(cfg.Provider.APIKey) {
			key = cfg.Provider.APIKey
		}
		if err := validator.ValidateAPIKey(key, cfg.Provider.Provider, cfg.Provider.BaseURL); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Provider.APIKey = key
		break
	}

	model, err := w.ask("Default model", cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateModel(model); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Model)
	} else {
		cfg.Model = model
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) ask(prompt, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, current)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current, nil
	}
	return line, nil
}

func mask(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
