package commandstructure

// mockCommand is a Command whose behaviour is supplied by the test
type mockCommand struct {
	name        string
	executeFunc func([]byte) ([]byte, error)
}

func (m *mockCommand) Name() string {
	return m.name
}

func (m *mockCommand) Execute(imageData []byte) ([]byte, error) {
	if m.executeFunc != nil {
		return m.executeFunc(imageData)
	}
	return imageData, nil
}

// newMockCommand creates a pass-through mock command
func newMockCommand(name string) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func(data []byte) ([]byte, error) {
			return data, nil
		},
	}
}

// newMockCommandWithError creates a mock command that always fails with err
func newMockCommandWithError(name string, err error) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func(data []byte) ([]byte, error) {
			return nil, err
		},
	}
}
