package cmd

import (
	"fmt"
	"sort"
	"strings"
)

// validateArgument rejects path arguments with shell metacharacters or
// traversal out of the working directory.
func validateArgument(arg string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "[", "]", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("path traversal attempt detected")
	}

	if strings.HasPrefix(arg, "/") {
		return fmt.Errorf("absolute path not allowed: %s", arg)
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
