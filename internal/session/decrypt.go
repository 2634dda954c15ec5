package session

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Decryptor recovers a cookie value from its encrypted_value blob.
type Decryptor interface {
	Decrypt(ctx context.Context, blob []byte) (string, error)
}

// DecryptorFunc adapts a function to Decryptor.
type DecryptorFunc func(ctx context.Context, blob []byte) (string, error)

func (f DecryptorFunc) Decrypt(ctx context.Context, blob []byte) (string, error) {
	return f(ctx, blob)
}

const dpapiTimeout = 5 * time.Second

const dpapiScript = `import sys
import win32crypt
data = sys.stdin.buffer.read()
if data:
    print(win32crypt.CryptUnprotectData(data, None, None, None, 0)[1].decode('utf-8', errors='ignore'))
`

// DefaultDecryptor returns the platform decryptor, or nil where none
// exists. On Windows legacy DPAPI blobs go through a python helper.
func DefaultDecryptor() Decryptor {
	if runtime.GOOS != "windows" {
		return nil
	}
	return DecryptorFunc(dpapiPython)
}

func dpapiPython(ctx context.Context, blob []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dpapiTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "python", "-c", dpapiScript)
	cmd.Stdin = bytes.NewReader(blob)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// decrypt never fails: versioned AES-GCM blobs ("v10", "v11" and the
// like) are not supported, and any decryptor error reads as no value.
func decrypt(ctx context.Context, dec Decryptor, blob []byte) string {
	if dec == nil || len(blob) == 0 || blob[0] == 'v' || blob[0] == '1' {
		return ""
	}
	v, err := dec.Decrypt(ctx, blob)
	if err != nil {
		return ""
	}
	return v
}
