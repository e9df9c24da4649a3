package common

import (
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

func MkdirForFile(fileName string) error {
	if err := os.MkdirAll(filepath.Dir(fileName), os.ModePerm); err != nil {
		return err
	}
	return nil
}

// OpenTempFile opens a collision-free scratch file next to fullPath.
// Used by the preprocessor and compiler drivers for every external tool
// invocation, since parallel workers may write into a shared output
// directory.
func OpenTempFile(fullPath string) (f *os.File, err error) {
	fileNameTmp := fullPath + "." + uuid.NewString()
	return os.OpenFile(fileNameTmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, os.ModePerm)
}

func ReplaceFileExt(fileName string, newExt string) string {
	ext := path.Ext(fileName)
	return fileName[0:len(fileName)-len(ext)] + newExt
}
