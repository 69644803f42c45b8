package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	kzip "github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	yzip "github.com/yeka/zip"

	"github.com/RhyVis/meta-manager/pkg/types"
)

// zipFlagEncrypted is bit 0 of the general purpose flags
const zipFlagEncrypted = 0x1

// zipExtractor reads plain archives with klauspost/compress and switches to
// yeka/zip when a password is supplied.
type zipExtractor struct{}

func (zipExtractor) Extract(archivePath, destDir, password string) error {
	if password != "" {
		return extractEncryptedZip(archivePath, destDir, password)
	}

	r, err := kzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: opening zip %s: %v", types.ErrInvalidArchive, archivePath, err)
	}
	defer r.Close()
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	for _, f := range r.File {
		if f.Flags&zipFlagEncrypted != 0 {
			return fmt.Errorf("%w: %s is encrypted", types.ErrWrongPassword, f.Name)
		}
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			if err := mkdirAll(target); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: reading %s: %v", types.ErrInvalidArchive, f.Name, err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractEncryptedZip(archivePath, destDir, password string) error {
	r, err := yzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: opening zip %s: %v", types.ErrInvalidArchive, archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			if err := mkdirAll(target); err != nil {
				return err
			}
			continue
		}

		encrypted := f.IsEncrypted()
		if encrypted {
			f.SetPassword(password)
		}

		rc, err := f.Open()
		if err != nil {
			return zipReadError(f.Name, encrypted, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return zipReadError(f.Name, encrypted, err)
		}
		if err := writeFile(target, bytes.NewReader(data), f.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

// zipReadError classifies a member read failure. For encrypted members a
// bad key surfaces as a decryption or checksum error.
func zipReadError(name string, encrypted bool, err error) error {
	if encrypted {
		return fmt.Errorf("%w: %s: %v", types.ErrWrongPassword, name, err)
	}
	return fmt.Errorf("%w: reading %s: %v", types.ErrInvalidArchive, name, err)
}
