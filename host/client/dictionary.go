package client

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dictionary is the parsed self-description of a board.
type Dictionary struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`
}

// lookupID finds a message by name in a map keyed by "name format".
func lookupID(messages map[string]int, name string) (uint16, bool) {
	for key, id := range messages {
		msgName, _, _ := strings.Cut(key, " ")
		if msgName == name {
			return uint16(id), true
		}
	}
	return 0, false
}

// CommandID returns the ID of a host-to-board command.
func (d *Dictionary) CommandID(name string) (uint16, bool) {
	return lookupID(d.Commands, name)
}

// ResponseID returns the ID of a board-to-host response.
func (d *Dictionary) ResponseID(name string) (uint16, bool) {
	return lookupID(d.Responses, name)
}

// ConstantInt returns a numeric config constant.
func (d *Dictionary) ConstantInt(name string) (int, error) {
	v, ok := d.Config[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return n, nil
}

// Summary renders the dictionary for humans.
func (d *Dictionary) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Version: %s\n", d.Version)
	fmt.Fprintf(&sb, "Build: %s\n", d.BuildVersions)

	sb.WriteString("\nConfig:\n")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(&sb, "  %s = %s\n", k, d.Config[k])
	}

	fmt.Fprintf(&sb, "\nCommands (%d):\n", len(d.Commands))
	writeMessages(&sb, d.Commands)
	fmt.Fprintf(&sb, "\nResponses (%d):\n", len(d.Responses))
	writeMessages(&sb, d.Responses)
	return sb.String()
}

func writeMessages(sb *strings.Builder, messages map[string]int) {
	formats := sortedKeys(messages)
	sort.SliceStable(formats, func(i, j int) bool {
		return messages[formats[i]] < messages[formats[j]]
	})
	for _, f := range formats {
		fmt.Fprintf(sb, "  [%d] %s\n", messages[f], f)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
