package commandstructure

import (
	"reflect"
	"testing"
)

func TestNewCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()
	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if registry.factories == nil {
		t.Fatal("Expected non-nil factories map")
	}
}

func TestCommandRegistry_Register(t *testing.T) {
	registry := NewCommandRegistry()
	factory := func(params map[string]any) (Command, error) {
		return newMockCommand("TestCommand"), nil
	}

	if err := registry.Register("TestCommand", factory); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := registry.Register("TestCommand", factory); err == nil {
		t.Error("Expected error for duplicate registration")
	}
	if err := registry.Register("", factory); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := registry.Register("NilFactory", nil); err == nil {
		t.Error("Expected error for nil factory")
	}
}

func TestCommandRegistry_Create(t *testing.T) {
	registry := NewCommandRegistry()
	err := registry.Register("TestCommand", func(params map[string]any) (Command, error) {
		return newMockCommand("TestCommand"), nil
	})
	if err != nil {
		t.Fatalf("Failed to register command: %v", err)
	}

	command, err := registry.Create("TestCommand", nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if command.Name() != "TestCommand" {
		t.Errorf("Expected command name 'TestCommand', got '%s'", command.Name())
	}

	if _, err := registry.Create("Missing", nil); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestCommandRegistry_CreateFactoryError(t *testing.T) {
	registry := NewCommandRegistry()
	_ = registry.Register("NeedsParam", func(params map[string]any) (Command, error) {
		if err := ValidateRequiredParams(params, []string{"width"}); err != nil {
			return nil, err
		}
		return newMockCommand("NeedsParam"), nil
	})

	if _, err := registry.Create("NeedsParam", map[string]any{}); err == nil {
		t.Error("Expected factory error to be returned")
	}
	if _, err := registry.Create("NeedsParam", map[string]any{"width": 10}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestCommandRegistry_GetRegisteredNames(t *testing.T) {
	registry := NewCommandRegistry()
	for _, name := range []string{"B", "A", "C"} {
		n := name
		_ = registry.Register(n, func(params map[string]any) (Command, error) {
			return newMockCommand(n), nil
		})
	}

	got := registry.GetRegisteredNames()
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if !registry.IsRegistered("A") || registry.IsRegistered("D") {
		t.Error("IsRegistered returned unexpected result")
	}
}
