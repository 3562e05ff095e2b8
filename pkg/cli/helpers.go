package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/grid5000/chiropctl/pkg/serializer"
)

// parseOutputFormat extracts and validates the output format from CLI flags.
// Returns the validated format or an error if the format is unknown.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	outFormat := serializer.Format(cmd.String("format"))
	if outFormat.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q, valid formats are: yaml, json, table", outFormat)
	}
	return outFormat, nil
}

// newSerializer builds the output writer from the shared --output and
// --format flags.
func newSerializer(cmd *cli.Command) (*serializer.Writer, error) {
	format, err := parseOutputFormat(cmd)
	if err != nil {
		return nil, err
	}
	return serializer.NewFileWriterOrStdout(format, cmd.String("output")), nil
}

// parseSetValues turns repeated key=value flags into a map.
func parseSetValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --set value %q, expected key=value", pair)
		}
		values[key] = value
	}
	return values, nil
}
