// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()

	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpGenerateGlobalKey, StatusSuccess, 0.5)

	count := testutil.CollectAndCount(OperationsTotal)
	if count != 1 {
		t.Errorf("Expected 1 operation recorded, got %d", count)
	}

	histCount := testutil.CollectAndCount(OperationDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	RecordOperation(OpFinishSign, StatusError, 0.1)

	count = testutil.CollectAndCount(OperationsTotal)
	if count != 2 {
		t.Errorf("Expected 2 operations recorded, got %d", count)
	}

	got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpFinishSign, StatusError))
	if got != 1 {
		t.Errorf("Expected finish_sign error count 1, got %v", got)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	OperationsTotal.Reset()

	RecordOperation(OpGenerateGlobalKey, StatusSuccess, 0.5)

	count := testutil.CollectAndCount(OperationsTotal)
	if count != 0 {
		t.Errorf("Expected 0 operations when disabled, got %d", count)
	}
}

func TestRecordRemoteCall(t *testing.T) {
	Enable()

	RemoteCallsTotal.Reset()
	RemoteCallDuration.Reset()

	RecordRemoteCall("HasGlobalKey", StatusSuccess, 0.01)
	RecordRemoteCall("HasGlobalKey", StatusSuccess, 0.02)

	got := testutil.ToFloat64(RemoteCallsTotal.WithLabelValues("HasGlobalKey", StatusSuccess))
	if got != 2 {
		t.Errorf("Expected 2 remote calls, got %v", got)
	}
	if n := testutil.CollectAndCount(RemoteCallDuration); n != 1 {
		t.Errorf("Expected 1 duration series, got %d", n)
	}
}

func TestRecordRemoteCallUnavailableSkipsDuration(t *testing.T) {
	Enable()

	RemoteCallsTotal.Reset()
	RemoteCallDuration.Reset()

	RecordRemoteCall("InitSign", StatusUnavailable, 0)

	got := testutil.ToFloat64(RemoteCallsTotal.WithLabelValues("InitSign", StatusUnavailable))
	if got != 1 {
		t.Errorf("Expected 1 unavailable call, got %v", got)
	}
	if n := testutil.CollectAndCount(RemoteCallDuration); n != 0 {
		t.Errorf("Expected no duration samples, got %d", n)
	}
}

func TestRecordGRPCRequest(t *testing.T) {
	Enable()

	GRPCRequestsTotal.Reset()
	GRPCRequestDuration.Reset()

	RecordGRPCRequest("/securekey.v1.SecureKeyService/GetVersion", "OK", 0.1)

	count := testutil.CollectAndCount(GRPCRequestsTotal)
	if count != 1 {
		t.Errorf("Expected 1 gRPC request recorded, got %d", count)
	}

	histCount := testutil.CollectAndCount(GRPCRequestDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 gRPC histogram sample, got %d", histCount)
	}
}

func TestRecordTransition(t *testing.T) {
	Enable()

	StateTransitionsTotal.Reset()

	RecordTransition("disconnected", "connecting", 1)
	if got := testutil.ToFloat64(ConnectionState); got != 1 {
		t.Errorf("Expected state gauge 1, got %v", got)
	}

	RecordTransition("connecting", "connected", 2)
	if got := testutil.ToFloat64(ConnectionState); got != 2 {
		t.Errorf("Expected state gauge 2, got %v", got)
	}

	got := testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("connecting", "connected"))
	if got != 1 {
		t.Errorf("Expected 1 connecting->connected transition, got %v", got)
	}
}

func TestConnectionCounters(t *testing.T) {
	Enable()

	ConnectAttemptsTotal.Reset()
	ConnectWaitsTotal.Reset()

	before := testutil.ToFloat64(EndpointDeathsTotal)

	RecordConnectAttempt(TriggerCaller)
	RecordConnectAttempt(TriggerReconnect)
	RecordConnectAttempt(TriggerReconnect)
	RecordConnectWait("timed_out")
	RecordEndpointDeath()

	if got := testutil.ToFloat64(ConnectAttemptsTotal.WithLabelValues(TriggerReconnect)); got != 2 {
		t.Errorf("Expected 2 reconnect attempts, got %v", got)
	}
	if got := testutil.ToFloat64(ConnectWaitsTotal.WithLabelValues("timed_out")); got != 1 {
		t.Errorf("Expected 1 timed out wait, got %v", got)
	}
	if got := testutil.ToFloat64(EndpointDeathsTotal); got != before+1 {
		t.Errorf("Expected death counter %v, got %v", before+1, got)
	}
}

func TestConnectionCountersWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	ConnectAttemptsTotal.Reset()
	before := testutil.ToFloat64(EndpointDeathsTotal)

	RecordConnectAttempt(TriggerCaller)
	RecordEndpointDeath()

	if n := testutil.CollectAndCount(ConnectAttemptsTotal); n != 0 {
		t.Errorf("Expected 0 attempts when disabled, got %d", n)
	}
	if got := testutil.ToFloat64(EndpointDeathsTotal); got != before {
		t.Errorf("Expected death counter unchanged, got %v", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	if Namespace != "securekey" {
		t.Errorf("Expected namespace 'securekey', got %s", Namespace)
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	Enable()

	OperationsTotal.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordOperation(OpHasAuthKey, StatusSuccess, 0.001)
		}()
	}
	wg.Wait()

	got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpHasAuthKey, StatusSuccess))
	if got != 100 {
		t.Errorf("Expected 100 operations, got %v", got)
	}
}

func BenchmarkRecordOperation(b *testing.B) {
	Enable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordOperation(OpInitSign, StatusSuccess, 0.1)
	}
}

func BenchmarkRecordRemoteCall(b *testing.B) {
	Enable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordRemoteCall("InitSign", StatusSuccess, 0.1)
	}
}
