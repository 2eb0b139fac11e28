// Package stream describes the named input streams a reader exposes and
// resolves the streams a training loop asks for into stable integer ids.
//
// A Registry is built once when a minibatch loop starts:
//
//	reg, err := stream.NewRegistry(r.StreamDescriptions(), []stream.InputDescription{
//		{Name: "features", DeviceID: tensor.CPUDevice},
//		{Name: "labels", DeviceID: tensor.CPUDevice, StorageType: stream.StorageSparseCSC},
//	})
//
// After that it is only consulted, never modified.
package stream
