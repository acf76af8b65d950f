package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/term"
)

// DefaultTimezone is used when the user leaves the timezone prompt empty.
const DefaultTimezone = "UTC"

var ErrUnknownTimezone = errors.New("unknown timezone")

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText writes prompt to w and reads one line from reader, trimmed.
// A final line without a newline is still accepted.
//
// Prompt format:
//
//	Enter email
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword reads the account password from the terminal without echo.
// The caller wipes the returned bytes once the login or registration call
// has been made.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// ParseTimezone checks an IANA timezone name typed at the registration
// prompt. Empty input means DefaultTimezone.
func ParseTimezone(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTimezone, nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", fmt.Errorf("%w %q", ErrUnknownTimezone, name)
	}
	return name, nil
}
