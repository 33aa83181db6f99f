package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TransactionLedger = (*MemoryLedger)(nil)
	_ TransactionReader = (*MemoryLedger)(nil)
	_ ProbeReportReader = (*MemoryLedger)(nil)
	_ Notifier          = NopNotifier{}
	_ MetricsRecorder   = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
