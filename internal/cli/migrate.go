package cli

import (
	"fmt"
	"io"

	coredatabase "github.com/m3rciful/shopbot/core/database"
)

type migrator struct {
	*coredatabase.Migrator
	out io.Writer
}

func (m *migrator) printVersion() error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		_, err = fmt.Fprintf(m.out, "version %d (dirty)\n", v)
		return err
	}
	_, err = fmt.Fprintf(m.out, "version %d\n", v)
	return err
}
