// Package internal contains the implementation packages of the quill
// template engine.
//
// The compilation pipeline flows through lexer, parser, validator and
// compiler; eval and escape execute compiled programs; cache, helpers and
// registry hold the shared state an engine instance owns. The engine
// package ties the pipeline together behind one façade, and server plus
// watcher build the live preview mode on top of it.
package internal
