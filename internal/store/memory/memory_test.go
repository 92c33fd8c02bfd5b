package memory

import (
	"testing"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) queue.Store { return New() })
}
