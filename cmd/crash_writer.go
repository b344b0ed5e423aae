package cmd

import (
	"os"
)

// CrashWriter appends fatal crash output to a file, so a panic that occurs
// after the mount point has detached from the terminal still leaves a trail.
type CrashWriter struct {
	fileName string
}

// SetCrashWriterFile points w at the file it appends crash output to.
func SetCrashWriterFile(w *CrashWriter, fileName string) {
	w.fileName = fileName
}

func (w *CrashWriter) Write(p []byte) (n int, err error) {
	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	n, err = f.Write(p)

	return
}
