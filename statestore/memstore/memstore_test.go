package memstore_test

import (
	"testing"

	"storj.io/dataflow/statestore/memstore"
	"storj.io/dataflow/statestore/storetest"
)

func TestMemstoreConformsToStore(t *testing.T) {
	storetest.RunCRUD(t, memstore.New())
}
