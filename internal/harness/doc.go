// Package harness drives simulated KNX devices through a bus and checks
// their feedback.
//
// A Harness wraps a bus.Bus with value-level helpers: Write and Read take
// and return knx.Value, WaitFor blocks until a group address carries a
// value matching a predicate, and the Expect helpers turn that into
// assertion errors. Waiting subscribes before it checks the current value,
// so a status telegram sent between the two is never missed.
//
// Cases follow the xUnit shape (Setup, Run, Teardown) and are executed
// sequentially by a Suite, which produces a Report:
//
//	h := harness.New(b, harness.WithTimeout(2*time.Second))
//	suite := harness.NewSuite("nightly", h)
//	suite.Add(harness.DeviceCases(registry.List())...)
//	report := suite.Run(ctx)
//	_ = report.WriteText(os.Stdout)
//
// Reports render as text or JSON and can be published over MQTT.
package harness
