package migration

import (
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	plandomain "github.com/verigate/verigate/internal/plan/domain"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	"gorm.io/gorm"
)

// RunMigrations creates the gateway schema. The service is usable out of
// the box for local and self-hosted environments.
func RunMigrations(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&plandomain.RatePlan{},
		&officerdomain.Officer{},
		&integrationdomain.ProviderIntegration{},
		&integrationdomain.OperationRoute{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Reservation{},
		&querylogdomain.QueryRecord{},
	)
}
