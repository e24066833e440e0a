package budget

import "go.uber.org/fx"

// Module provides the budget ledger to Fx.
var Module = fx.Provide(NewLedger)
