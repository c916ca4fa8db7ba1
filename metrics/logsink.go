package metrics

import "log/slog"

// LogSink writes each report as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging at Info level. A nil logger uses
// slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) ReportBuyerInput(report BuyerInputReport) {
	s.logger.Info("buyer input generated",
		"strategy_version", report.StrategyVersion,
		"buyer_count", report.BuyerCount,
		"candidate_count", report.CandidateCount,
		"compressed_size_bytes", report.CompressedSizeBytes,
		"recalculations", report.Recalculations,
		"latency", report.Latency,
		"result", string(report.Result),
	)
}

func (s *LogSink) ReportBidding(report BiddingReport) {
	s.logger.Info("bidding run finished",
		"buyer", report.Buyer,
		"candidates", report.Candidates,
		"completed", report.Completed,
		"cancelled", report.Cancelled,
		"failed", report.Failed,
		"timed_out", report.TimedOut,
		"latency", report.Latency,
	)
}
