package hasher

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crishoj/odf-fetch/logger"

	"github.com/cespare/xxhash/v2"
)

func TestComputeChecksums(t *testing.T) {
	logger.Init("error")
	tmp, err := os.CreateTemp("", "checksum-test")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString("hello world")
	tmp.Close()

	sums := ComputeChecksums(tmp.Name(), []string{"xxhash", "sha256", "blake3", "xxhash", "md5"})
	var want [8]byte
	binary.BigEndian.PutUint64(want[:], xxhash.Sum64String("hello world"))
	if sums["xxhash"] != hex.EncodeToString(want[:]) {
		t.Errorf("xxhash mismatch: %s", sums["xxhash"])
	}
	if sums["sha256"] != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", sums["sha256"])
	}
	if len(sums["blake3"]) != 64 {
		t.Errorf("blake3 digest should be 32 bytes, got %q", sums["blake3"])
	}
	if _, ok := sums["md5"]; ok {
		t.Errorf("unexpected checksum for unsupported algorithm")
	}
}

func TestComputeChecksumsMissingFile(t *testing.T) {
	logger.Init("error")
	if sums := ComputeChecksums("/definitely/not/here.xml", []string{"xxhash"}); len(sums) != 0 {
		t.Fatalf("expected no checksums, got %v", sums)
	}
}

func TestComputeChecksumsFuzzy(t *testing.T) {
	logger.Init("error")
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("<OdfBody><Competition>")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, `<Participant Code="%d" Name="Athlete %d" Organisation="N%02d"/>`, 1000+i*7, i, i%31)
	}
	b.WriteString("</Competition></OdfBody>")
	big := filepath.Join(dir, "big.xml")
	if err := os.WriteFile(big, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sums := ComputeChecksums(big, []string{"tlsh", "xxhash"})
	if sums["tlsh"] == "" || sums["xxhash"] == "" {
		t.Fatalf("expected both digests, got %v", sums)
	}
	if sums["xxhash"] != ComputeChecksums(big, []string{"xxhash"})["xxhash"] {
		t.Fatal("fuzzy digest must not disturb the other checksums")
	}

	small := filepath.Join(dir, "small.xml")
	if err := os.WriteFile(small, []byte("<OdfBody/>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sums = ComputeChecksums(small, []string{"tlsh", "xxhash"})
	if _, ok := sums["tlsh"]; ok || sums["xxhash"] == "" {
		t.Fatalf("short files only get exact checksums, got %v", sums)
	}
}
