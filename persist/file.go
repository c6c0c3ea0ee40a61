package persist

import (
	"os"

	"github.com/ppopth/gf2-exponent/mexp"
)

// SaveInput writes an input to path, replacing any existing file
func SaveInput(path string, in *mexp.Input) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteInput(f, in)
}

// LoadInput reads an input from path
func LoadInput(path string) (*mexp.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadInput(f)
}

// SaveOutput writes an output to path, replacing any existing file
func SaveOutput(path string, out *mexp.Output) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteOutput(f, out)
}

// LoadOutput reads an output from path
func LoadOutput(path string) (*mexp.Output, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadOutput(f)
}
