// Package vllm implements the raw engine handle for a vLLM backend. It is
// the Base variant: batches are the backend's structured chunk payloads,
// decoded but otherwise untouched.
package vllm
