// Package all registers every warehouse backend. Import it for its side
// effects from binaries that should support all storage kinds:
//
//	import _ "medallion/internal/warehouse/all"
package all

import (
	_ "medallion/internal/warehouse/mssql"
	_ "medallion/internal/warehouse/postgres"
	_ "medallion/internal/warehouse/sqlite"
)
