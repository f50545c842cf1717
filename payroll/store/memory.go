// Package store provides in-process Repository implementations.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a payroll.TxRepository held in maps.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

var _ payroll.TxRepository = (*Memory)(nil)

func (m *Memory) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetEmployee(ctx, id)
}

func (m *Memory) PutEmployee(ctx context.Context, emp payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PutEmployee(ctx, emp)
}

func (m *Memory) DeleteEmployee(ctx context.Context, id payroll.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteEmployee(ctx, id)
}

func (m *Memory) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEmployees(ctx)
}

func (m *Memory) AppendTimeRecord(ctx context.Context, rec payroll.TimeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendTimeRecord(ctx, rec)
}

func (m *Memory) AppendSalesReceipt(ctx context.Context, rec payroll.SalesReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendSalesReceipt(ctx, rec)
}

func (m *Memory) AppendServiceCharge(ctx context.Context, rec payroll.ServiceCharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendServiceCharge(ctx, rec)
}

func (m *Memory) AppendBankAccount(ctx context.Context, acct payroll.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendBankAccount(ctx, acct)
}

func (m *Memory) ListEmployeesWithFacts(ctx context.Context) ([]payroll.EmployeeFacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEmployeesWithFacts(ctx)
}

func (m *Memory) LatestPaymentDate(ctx context.Context) (payroll.Date, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LatestPaymentDate(ctx)
}

func (m *Memory) RecordPayment(ctx context.Context, p payroll.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.RecordPayment(ctx, p)
}

func (m *Memory) ListPayments(ctx context.Context) ([]payroll.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListPayments(ctx)
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
// Transactions are serialized; other callers block until fn returns.
func (m *Memory) WithTx(_ context.Context, fn func(payroll.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// STATE - Unlocked view, also handed to WithTx callbacks
// =============================================================================

type state struct {
	employees      map[payroll.EmployeeID]payroll.Employee
	timeRecords    map[payroll.EmployeeID][]payroll.TimeRecord
	salesReceipts  map[payroll.EmployeeID][]payroll.SalesReceipt
	serviceCharges map[payroll.EmployeeID][]payroll.ServiceCharge
	bankAccounts   map[payroll.EmployeeID][]payroll.BankAccount
	payments       []payroll.Payment
}

func newState() *state {
	return &state{
		employees:      make(map[payroll.EmployeeID]payroll.Employee),
		timeRecords:    make(map[payroll.EmployeeID][]payroll.TimeRecord),
		salesReceipts:  make(map[payroll.EmployeeID][]payroll.SalesReceipt),
		serviceCharges: make(map[payroll.EmployeeID][]payroll.ServiceCharge),
		bankAccounts:   make(map[payroll.EmployeeID][]payroll.BankAccount),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, emp := range s.employees {
		c.employees[id] = emp.Clone()
	}
	for id, v := range s.timeRecords {
		c.timeRecords[id] = slices.Clone(v)
	}
	for id, v := range s.salesReceipts {
		c.salesReceipts[id] = slices.Clone(v)
	}
	for id, v := range s.serviceCharges {
		c.serviceCharges[id] = slices.Clone(v)
	}
	for id, v := range s.bankAccounts {
		c.bankAccounts[id] = slices.Clone(v)
	}
	c.payments = slices.Clone(s.payments)
	return c
}

func (s *state) GetEmployee(_ context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	emp, ok := s.employees[id]
	if !ok {
		return nil, &payroll.NotFoundError{EmployeeID: id}
	}
	c := emp.Clone()
	return &c, nil
}

func (s *state) PutEmployee(_ context.Context, emp payroll.Employee) error {
	if emp.ID == "" {
		return fmt.Errorf("put employee: empty id")
	}
	s.employees[emp.ID] = emp.Clone()
	return nil
}

// DeleteEmployee removes the employee together with every fact it owns.
func (s *state) DeleteEmployee(_ context.Context, id payroll.EmployeeID) error {
	if _, ok := s.employees[id]; !ok {
		return &payroll.NotFoundError{EmployeeID: id}
	}
	delete(s.employees, id)
	delete(s.timeRecords, id)
	delete(s.salesReceipts, id)
	delete(s.serviceCharges, id)
	delete(s.bankAccounts, id)
	return nil
}

func (s *state) ListEmployees(_ context.Context) ([]payroll.Employee, error) {
	result := make([]payroll.Employee, 0, len(s.employees))
	for _, id := range s.sortedIDs() {
		result = append(result, s.employees[id].Clone())
	}
	return result, nil
}

func (s *state) AppendTimeRecord(_ context.Context, rec payroll.TimeRecord) error {
	if err := s.requireEmployee(rec.EmployeeID); err != nil {
		return err
	}
	s.timeRecords[rec.EmployeeID] = append(s.timeRecords[rec.EmployeeID], rec)
	return nil
}

func (s *state) AppendSalesReceipt(_ context.Context, rec payroll.SalesReceipt) error {
	if err := s.requireEmployee(rec.EmployeeID); err != nil {
		return err
	}
	s.salesReceipts[rec.EmployeeID] = append(s.salesReceipts[rec.EmployeeID], rec)
	return nil
}

func (s *state) AppendServiceCharge(_ context.Context, rec payroll.ServiceCharge) error {
	if err := s.requireEmployee(rec.EmployeeID); err != nil {
		return err
	}
	s.serviceCharges[rec.EmployeeID] = append(s.serviceCharges[rec.EmployeeID], rec)
	return nil
}

func (s *state) AppendBankAccount(_ context.Context, acct payroll.BankAccount) error {
	if err := s.requireEmployee(acct.EmployeeID); err != nil {
		return err
	}
	s.bankAccounts[acct.EmployeeID] = append(s.bankAccounts[acct.EmployeeID], acct)
	return nil
}

func (s *state) ListEmployeesWithFacts(_ context.Context) ([]payroll.EmployeeFacts, error) {
	result := make([]payroll.EmployeeFacts, 0, len(s.employees))
	for _, id := range s.sortedIDs() {
		result = append(result, payroll.EmployeeFacts{
			Employee:       s.employees[id].Clone(),
			TimeRecords:    slices.Clone(s.timeRecords[id]),
			SalesReceipts:  slices.Clone(s.salesReceipts[id]),
			ServiceCharges: slices.Clone(s.serviceCharges[id]),
			BankAccounts:   slices.Clone(s.bankAccounts[id]),
		})
	}
	return result, nil
}

func (s *state) LatestPaymentDate(_ context.Context) (payroll.Date, bool, error) {
	var latest payroll.Date
	found := false
	for _, p := range s.payments {
		if !found || p.Date.After(latest) {
			latest, found = p.Date, true
		}
	}
	return latest, found, nil
}

func (s *state) RecordPayment(_ context.Context, p payroll.Payment) error {
	if p.ID == "" {
		return fmt.Errorf("record payment: empty id")
	}
	s.payments = append(s.payments, p)
	return nil
}

// ListPayments returns payments oldest first.
func (s *state) ListPayments(_ context.Context) ([]payroll.Payment, error) {
	result := slices.Clone(s.payments)
	slices.SortStableFunc(result, func(a, b payroll.Payment) int {
		return a.Date.Time.Compare(b.Date.Time)
	})
	return result, nil
}

func (s *state) requireEmployee(id payroll.EmployeeID) error {
	if _, ok := s.employees[id]; !ok {
		return &payroll.NotFoundError{EmployeeID: id}
	}
	return nil
}

func (s *state) sortedIDs() []payroll.EmployeeID {
	ids := make([]payroll.EmployeeID, 0, len(s.employees))
	for id := range s.employees {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b payroll.EmployeeID) int {
		return strings.Compare(string(a), string(b))
	})
	return ids
}
