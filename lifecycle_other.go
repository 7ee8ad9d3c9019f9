//go:build !unix

// ABOUTME: Lifecycle hook for platforms without job-control signals
// ABOUTME: The poll loop alone keeps the session in sync there
package main

import (
	"context"

	"github.com/Sendspin/hubremote/internal/app"
	"github.com/sirupsen/logrus"
)

func watchLifecycle(context.Context, *app.Model, logrus.FieldLogger) (stop func()) {
	return func() {}
}
