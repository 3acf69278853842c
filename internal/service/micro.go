package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/sirupsen/logrus"
	"github.com/synadia-labs/cli-harness/internal/harness"
)

const (
	Name    = "CommandEndpoint"
	Version = "0.1.0"
)

// StartNATSMicro registers PING, ENV and RUN under "<prefix>.". The caller
// stops the returned service.
func StartNATSMicro(nc *nats.Conn, prefix string, exec Executor, log logrus.FieldLogger) (micro.Service, error) {
	svc, err := micro.AddService(nc, micro.Config{
		Name:        Name,
		Description: "NATS micro service running administrative commands on a storage node.",
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating nats micro service: %s", err)
	}

	endpoints := []struct {
		name    string
		handler func(r micro.Request, exec Executor, log logrus.FieldLogger)
		request string
	}{
		{"PING", ping, ""},
		{"ENV", getEnvironment, ""},
		{"RUN", runCommand, `{"command": "string", "inputs": ["string"], "raw": bool}`},
	}
	for _, ep := range endpoints {
		err = svc.AddEndpoint(
			ep.name,
			microLogHandler(exec, log, ep.handler),
			micro.WithEndpointSubject(fmt.Sprintf("%s.%s", prefix, ep.name)),
			micro.WithEndpointMetadata(map[string]string{
				"request": ep.request,
			}),
		)
		if err != nil {
			svc.Stop()
			return nil, fmt.Errorf("error adding %s endpoint: %s", ep.name, err)
		}
	}

	log.Infof("nats micro service started on %s.*", prefix)
	return svc, nil
}

func microLogHandler(exec Executor, log logrus.FieldLogger, fn func(r micro.Request, exec Executor, log logrus.FieldLogger)) micro.Handler {
	return micro.HandlerFunc(func(r micro.Request) {
		start := time.Now()
		fn(r, exec, log)
		log.WithFields(logrus.Fields{
			"subject":  r.Subject(),
			"duration": time.Since(start),
		}).Info("request handled")
	})
}

func ping(r micro.Request, exec Executor, log logrus.FieldLogger) {
	if err := r.Respond([]byte(exec.Ping())); err != nil {
		log.Errorf("ping response error: %s", err)
	}
}

func getEnvironment(r micro.Request, exec Executor, log logrus.FieldLogger) {
	if err := r.RespondJSON(exec.GetEnvironment()); err != nil {
		log.Errorf("environment response error: %s", err)
	}
}

func runCommand(r micro.Request, exec Executor, log logrus.FieldLogger) {
	var req harness.Request
	if err := json.Unmarshal(r.Data(), &req); err != nil {
		log.Errorf("run request error: %s", err)
		r.Error("400", fmt.Sprintf("run request error: %s", err), nil)
		return
	}

	envelope := exec.RunCommand(context.Background(), req)
	if err := r.RespondJSON(envelope); err != nil {
		log.Errorf("run response error: %s", err)
	}
}
