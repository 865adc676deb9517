package backend

import (
	"context"
	"errors"
)

// ErrOffline is returned by Offline for every call.
var ErrOffline = errors.New("no remote store configured")

// Offline is the RemoteStore used when no remote is configured.
// Every call fails, so the client keeps working purely on local state.
type Offline struct{}

func (Offline) FetchAll(context.Context) ([]RemoteTask, error) { return nil, ErrOffline }

func (Offline) Create(context.Context, RemoteTaskInput) (*RemoteTask, error) { return nil, ErrOffline }

func (Offline) Update(context.Context, string, TaskUpdate) error { return ErrOffline }

func (Offline) Delete(context.Context, string) error { return ErrOffline }
