package audit

import (
	"testing"

	"gravecore/testutil"
)

func TestAdapterDoesNotImportService(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.PackagesForbidden("internal/core", "internal/api", "internal/server"),
		"adapters depend on the domain only")
}
