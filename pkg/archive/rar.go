package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"

	"github.com/RhyVis/meta-manager/pkg/types"
)

// rarExtractor walks the archive header by header. Multi-volume sets are
// resolved from the first volume's directory by rardecode itself.
type rarExtractor struct{}

func (rarExtractor) Extract(archivePath, destDir, password string) error {
	var opts []rardecode.Option
	if password != "" {
		opts = append(opts, rardecode.Password(password))
	}

	r, err := rardecode.OpenReader(archivePath, opts...)
	if err != nil {
		return rarError(archivePath, password, err)
	}
	defer r.Close()

	for {
		header, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return rarError(archivePath, password, err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		if header.IsDir {
			if err := mkdirAll(target); err != nil {
				return err
			}
			continue
		}
		if !header.Mode().IsRegular() {
			continue
		}

		if err := writeFile(target, r, header.Mode().Perm()); err != nil {
			return err
		}
	}
}

func rarError(archivePath, password string, err error) error {
	if password != "" {
		return fmt.Errorf("%w: rar %s (wrong password?): %v", types.ErrInvalidArchive, archivePath, err)
	}
	return fmt.Errorf("%w: rar %s: %v", types.ErrInvalidArchive, archivePath, err)
}
