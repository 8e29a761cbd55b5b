package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrControlMessageMalformed marks a message that failed to parse. The
// listener logs and drops it rather than propagating the error.
var ErrControlMessageMalformed = errors.New("control: malformed message")

// parseLine splits a single control-message line into its address token and
// remaining whitespace-separated fields.
func parseLine(line string) (address string, fields []string, err error) {
	fields = strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: empty line", ErrControlMessageMalformed)
	}
	return fields[0], fields[1:], nil
}

// parseCommand decodes one line into a Command, looking up its address in
// the known command table.
func parseCommand(line string) (Command, error) {
	address, fields, err := parseLine(line)
	if err != nil {
		return Command{}, err
	}
	kind, ok := addressKind[address]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown address %q", ErrControlMessageMalformed, address)
	}
	return Command{Kind: kind, Fields: fields}, nil
}

func parseInt32s(fields []string) ([]int32, error) {
	values := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d (%q): %v", ErrControlMessageMalformed, i, f, err)
		}
		values[i] = int32(v)
	}
	return values, nil
}

func parseInt(field string) (int, error) {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrControlMessageMalformed, field, err)
	}
	return v, nil
}

func parseFloat32(field string) (float32, error) {
	v, err := strconv.ParseFloat(field, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrControlMessageMalformed, field, err)
	}
	return float32(v), nil
}

func parseBool(field string) (bool, error) {
	v, err := strconv.ParseBool(field)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrControlMessageMalformed, field, err)
	}
	return v, nil
}

// splitPathList splits a "#"-separated soundfile list, matching the
// reference playlist encoding.
func splitPathList(s string) []string {
	parts := strings.Split(s, "#")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
