// Package shim connects a reader.Reader to a training loop that asks for one
// minibatch at a time.
//
// A ReaderShim is started for an epoch with the input streams the loop
// needs, optionally as one worker of a distributed job. Each GetMinibatch
// call hands over a minibatch that was read and converted into matrices
// while the caller was busy with the previous one:
//
//	s := shim.New(r, shim.NewConstantConfig(nil)).
//		WithLogger(shim.NewKlogLogger(shim.LogLevelInfo)).
//		WithStats(shim.NewBasicStatsCollector())
//	defer s.Close()
//
//	err := s.StartMinibatchLoop(256, epoch, []stream.InputDescription{
//		{Name: "features", DeviceID: tensor.CPUDevice},
//		{Name: "labels", DeviceID: tensor.CPUDevice},
//	}, 0)
//
// Prefetching can be switched off through Config, in which case every read
// runs inline and the results are identical.
package shim
