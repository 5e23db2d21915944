package board

import (
	"fmt"
	"sync"
)

// CommandHandler decodes its own arguments from data.
type CommandHandler func(data *[]byte) error

// Command is one entry of the message dictionary. Responses have no
// handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "pid=%u addr=%u"
	Handler CommandHandler
}

// Registry assigns message IDs in registration order.
type Registry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command and returns its ID. Registering a name twice
// returns the original ID.
func (r *Registry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id
	return id
}

// RegisterResponse adds a board-to-host message.
func (r *Registry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler registered for cmdID.
func (r *Registry) Dispatch(cmdID uint16, data *[]byte) error {
	r.mu.RLock()
	cmd, ok := r.commands[cmdID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown command ID %d", cmdID)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("%s is a response", cmd.Name)
	}
	return cmd.Handler(data)
}

// CommandsAndResponses returns the "name format" strings of every message
// keyed to its ID, split by direction.
func (r *Registry) CommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for id, cmd := range r.commands {
		key := cmd.Name
		if cmd.Format != "" {
			key += " " + cmd.Format
		}
		if cmd.Handler != nil {
			commands[key] = int(id)
		} else {
			responses[key] = int(id)
		}
	}
	return commands, responses
}
