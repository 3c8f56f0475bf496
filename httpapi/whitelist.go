package httpapi

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadWhitelist reads a newline-delimited file of base58 wallet pubkeys
// (the --whitelist flag, §6 Environment) into a lookup set. Blank lines
// and lines starting with "#" are ignored. An empty path is not an error:
// it yields an empty whitelist, matching operators who never pass the
// flag.
func LoadWhitelist(path string) (map[string]bool, error) {
	set := make(map[string]bool)
	if path == "" {
		return set, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "httpapi: open whitelist")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "httpapi: read whitelist")
	}
	return set, nil
}
