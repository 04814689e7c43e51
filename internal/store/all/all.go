// Package all links every store backend into a binary. Import it for side
// effects from package main; the selected backend is then a config choice,
// not a build choice.
package all

import (
	_ "ogdsync/internal/store/d1"
	_ "ogdsync/internal/store/mssql"
	_ "ogdsync/internal/store/postgres"
	_ "ogdsync/internal/store/sqlite"
)
