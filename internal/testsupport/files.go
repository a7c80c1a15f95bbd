package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// StubIPFSVersion is what StubIPFSScript prints for `version --number`.
const StubIPFSVersion = "0.29.0-stub"

// StubIPFSScript imitates the daemon binary for runner and supervisor tests.
// Invocations with IPFS_PATH set are appended to $IPFS_PATH/../calls.log.
// `daemon` sleeps until terminated.
const StubIPFSScript = `#!/bin/sh
if [ -n "$IPFS_PATH" ]; then
	echo "$*" >> "$(dirname "$IPFS_PATH")/calls.log"
fi
case "$1" in
version)
	echo "` + StubIPFSVersion + `"
	;;
init)
	mkdir -p "$IPFS_PATH/blocks" "$IPFS_PATH/datastore" "$IPFS_PATH/keystore"
	echo '{}' > "$IPFS_PATH/config"
	echo 1 > "$IPFS_PATH/datastore_spec"
	echo 15 > "$IPFS_PATH/version"
	;;
id)
	echo '{"ID":"12D3KooWStubPeer","AgentVersion":"kubo/stub"}'
	;;
add)
	echo "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	;;
daemon)
	sleep 300 &
	child=$!
	trap 'kill $child 2>/dev/null; exit 0' TERM INT
	wait $child
	;;
fail)
	echo "boom" >&2
	exit 1
	;;
esac
exit 0
`

// WriteExecutable writes content to path with mode 0755 and returns path.
func WriteExecutable(t testing.TB, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadCalls returns the stub binary invocations recorded next to repoPath.
func ReadCalls(t testing.TB, repoPath string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(repoPath), "calls.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read calls log: %v", err)
	}
	var calls []string
	for _, line := range splitLines(string(data)) {
		if line != "" {
			calls = append(calls, line)
		}
	}
	return calls
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
