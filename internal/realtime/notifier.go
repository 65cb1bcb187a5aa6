// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package realtime

import "log/slog"

// Notifier shows the ambient, user-visible notice for a push event. The
// text is generic on purpose; the payload stays out of the toast.
type Notifier interface {
	Notify(text string)
}

// LogNotifier writes toasts to the structured log. It is the default for
// headless runs; interactive front ends supply their own.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(text string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "text", text)
}
