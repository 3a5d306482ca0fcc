// ABOUTME: checksum inline function: hashes or verifies a file's contents
// ABOUTME: Adapted from the teacher's internal/tasks/checksum, generalized to the inline function contract

package inline

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/weftrun/weft/pkg/types"
)

func checksumFunc(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, types.NewConfigurationError("checksum: path is required")
	}
	algorithm, _ := args["algorithm"].(string)
	if algorithm == "" {
		algorithm = "sha256"
	}

	sum, err := hashFile(path, algorithm)
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("checksum: %v", err))
	}

	out := map[string]interface{}{
		"checksum":  sum,
		"algorithm": algorithm,
	}

	if expected, ok := args["expected"].(string); ok && expected != "" {
		out["verified"] = sum == expected
	}

	return out, nil
}

func hashFile(path, algorithm string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var h hash.Hash
	switch algorithm {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	case "md5":
		h = md5.New()
	case "blake2b":
		h, err = blake2b.New256(nil)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
