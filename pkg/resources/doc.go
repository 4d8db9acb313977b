// Package resources abstracts the resource-provisioning backend behind a
// single Backend contract. Provisioned objects form a tree of named, typed
// nodes with parent/child edges and exported key/value outputs.
//
// Two implementations exist: MockBackend keeps an in-memory forest for dry
// runs and testing, and EngineBackend delegates to the external provisioning
// engine. Extension code sees an identical contract either way.
//
// Every resource name is namespaced <runRoot>.<extensionNamespace>.<localName>
// to guarantee global uniqueness within a run. Extension root resources are
// protected, signaling the backend not to destructively replace them on
// reapply.
package resources
