package health

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"tournament-ledger/utils"
)

const ServiceName = "tournament.v1.Ledger"

// Pinger reports whether the ledger database answers.
type Pinger func(ctx context.Context) error

func DBPinger(db *gorm.DB) Pinger {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// Watch pings on every interval and flips the serving status of both the
// overall server and ServiceName. It returns when ctx is done.
func Watch(ctx context.Context, hs *grpchealth.Server, ping Pinger, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := ping(pctx)
		cancel()
		status := healthgrpc.HealthCheckResponse_SERVING
		if err != nil {
			status = healthgrpc.HealthCheckResponse_NOT_SERVING
			utils.Warnf("[HEALTH] ⚠️ Database ping failed: %v", err)
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}

// StartGRPCServer serves health and reflection on listener until ctx is done.
func StartGRPCServer(ctx context.Context, listener net.Listener, ping Pinger) {
	s := grpc.NewServer()

	hs := grpchealth.NewServer()
	healthgrpc.RegisterHealthServer(s, hs)
	go Watch(ctx, hs, ping, 15*time.Second)

	// grpcurl/evans
	reflection.Register(s)

	errChan := make(chan error, 1)
	go func() {
		utils.Infof("🚀 gRPC health server listening on %s", listener.Addr())
		errChan <- s.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		utils.Info("🔴 Stopping gRPC server...")
		s.GracefulStop()
		utils.Info("✅ gRPC server stopped.")
	case err := <-errChan:
		if err != nil {
			utils.Error("❌ gRPC server error: " + err.Error())
		}
	}
}
