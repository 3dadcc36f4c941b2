// Package all registers every sink backend.
package all

import (
	_ "github.com/qretaio/html2json/internal/sink/mssql"
	_ "github.com/qretaio/html2json/internal/sink/postgres"
	_ "github.com/qretaio/html2json/internal/sink/sqlite"
)
