package caseapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const inputDataManifestName = "inputdata.yaml"

// VerifyInputData checks that every input file the case's manifest lists is
// present. With chksum set it additionally verifies each file's sha256 against
// the recorded digest. A case without a manifest passes trivially.
func (c *Case) VerifyInputData(chksum bool) error {
	manifestPath := filepath.Join(c.Dir, inputDataManifestName)
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read input data manifest: %w", err)
	}

	manifest := map[string]string{}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse input data manifest: %w", err)
	}

	for rel, want := range manifest {
		path := filepath.Join(c.Dir, rel)
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("input data %s is not available: %w", rel, err)
		}
		if !chksum {
			continue
		}
		sum := sha256.Sum256(content)
		if got := hex.EncodeToString(sum[:]); got != want {
			return fmt.Errorf("input data %s failed checksum verification (have %s, want %s)", rel, got, want)
		}
	}
	return nil
}
