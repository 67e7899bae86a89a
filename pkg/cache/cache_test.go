package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	val, ok := c.Get("key1")
	if !ok || val != "value1" {
		t.Fatalf("expected value1, got %v, exists=%v", val, ok)
	}
}

func TestGetMissReturnsZeroValue(t *testing.T) {
	c := New[[]string]()
	val, ok := c.Get("absent")
	if ok || val != nil {
		t.Fatalf("expected zero value on miss, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected expired key to return false")
	}
}

func TestDelete(t *testing.T) {
	c := New[string]()
	c.Set("key1", "value1", 1*time.Second)
	c.Delete("key1")
	_, ok := c.Get("key1")
	if ok {
		t.Fatalf("expected deleted key to return false")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string]()
	c.Set("books:available", "b", 1*time.Second)
	c.Set("books:all", "a", 1*time.Second)
	c.Set("loans:user:1", "l", 1*time.Second)
	c.Invalidate("books:")
	_, ok1 := c.Get("books:available")
	_, ok2 := c.Get("books:all")
	_, ok3 := c.Get("loans:user:1")
	if ok1 || ok2 {
		t.Fatalf("expected book keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected loans:user:1 to still exist")
	}
}
