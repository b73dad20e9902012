package builder

// Command is a module action verb. The set mirrors what the station
// firmware accepts.
type Command string

// All module commands.
const (
	CommandPick         Command = "PICK"
	CommandDrop         Command = "DROP"
	CommandMill         Command = "MILL"
	CommandDrill        Command = "DRILL"
	CommandCheckQuality Command = "CHECK_QUALITY"
	CommandStore        Command = "STORE"
)

// AllCommands returns every valid module command.
func AllCommands() []Command {
	return []Command{
		CommandPick, CommandDrop, CommandMill,
		CommandDrill, CommandCheckQuality, CommandStore,
	}
}

// ValidCommand reports whether cmd is a known module command.
func ValidCommand(cmd Command) bool {
	switch cmd {
	case CommandPick, CommandDrop, CommandMill,
		CommandDrill, CommandCheckQuality, CommandStore:
		return true
	}
	return false
}

// Default action metadata accepted by every station.
const (
	DefaultPriority = "NORMAL"
	DefaultTimeoutS = 300
)

// ModuleOrderParams assembles the params map for a module order
// payload: serial number, fresh order and action ids, the action verb
// and its metadata. The orderUpdateId is supplied by the caller, who
// owns the per-module sequence.
func (b *Builder) ModuleOrderParams(serial string, cmd Command, orderUpdateID int64, workpieceType, workpieceID string) map[string]any {
	metadata := map[string]any{
		"priority": DefaultPriority,
		"timeout":  DefaultTimeoutS,
	}
	if workpieceType != "" {
		metadata["type"] = workpieceType
	}
	if workpieceID != "" {
		metadata["workpieceId"] = workpieceID
	}

	return map[string]any{
		"serialNumber":  serial,
		"orderId":       b.newID(),
		"orderUpdateId": orderUpdateID,
		"timestamp":     b.now().UTC().Format(timestampLayout),
		"action": map[string]any{
			"id":       b.newID(),
			"command":  string(cmd),
			"metadata": metadata,
		},
	}
}
