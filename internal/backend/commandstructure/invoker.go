package commandstructure

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker executes a fixed sequence of commands on frame data
type CommandInvoker struct {
	commands []Command
}

// NewCommandInvoker creates an invoker for already constructed commands
func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// NewCommandInvokerFromConfig builds every configured command from the registry up front,
// so configuration mistakes surface at startup instead of on the first request.
func NewCommandInvokerFromConfig(registry *CommandRegistry, configs []CommandConfig) (*CommandInvoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands), nil
}

// Len returns the number of commands in the pipeline
func (i *CommandInvoker) Len() int {
	return len(i.commands)
}

// Execute applies all commands in sequence to the image data
func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	if len(i.commands) == 0 {
		return imageData, nil
	}

	start := time.Now()
	currentData := imageData

	for idx, command := range i.commands {
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("preprocessing command failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("preprocessing command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Debug("preprocessing pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}

// ExecuteCommands builds the configured commands from DefaultRegistry and applies them in order
func ExecuteCommands(imageData []byte, commandConfigs []CommandConfig) ([]byte, error) {
	invoker, err := NewCommandInvokerFromConfig(DefaultRegistry, commandConfigs)
	if err != nil {
		return nil, err
	}
	return invoker.Execute(imageData)
}
