package attendancekey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Run generates an ed25519 attendance token key pair and writes shell
// export lines for the signer and verifier env vars.
func Run(out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate attendance token key: %w", err)
	}
	exports := []struct {
		name string
		key  []byte
	}{
		{"GATHERPOINT_ATTENDANCE_TOKEN_PRIVATE_KEY", privateKey},
		{"GATHERPOINT_ATTENDANCE_TOKEN_PUBLIC_KEY", publicKey},
	}
	for _, export := range exports {
		if _, err := fmt.Fprintf(out, "export %s=%s\n", export.name, base64.RawStdEncoding.EncodeToString(export.key)); err != nil {
			return err
		}
	}
	return nil
}
