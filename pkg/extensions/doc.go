// Package extensions discovers and loads pipeline extensions.
//
// Extensions come from two sources: builtin factories compiled into the
// binary, and Go plugin shared objects named pipewright_extension_<name>.so
// found in the configured extension directory. A plugin shadows a builtin of
// the same name, so a builtin can be replaced without rebuilding.
package extensions
