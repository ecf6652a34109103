// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package integer

// Transfer moves amount from one encrypted balance to another. When from
// holds less than amount both balances are returned unchanged; the caller
// cannot tell which case happened without decrypting.
func (sk *ServerKey) Transfer(from, to, amount *RadixCiphertext) (newFrom, newTo *RadixCiphertext, err error) {
	enough, err := sk.SmartGe(from, amount)
	if err != nil {
		return nil, nil, err
	}
	credited, err := sk.SmartAdd(to, amount)
	if err != nil {
		return nil, nil, err
	}
	debited, err := sk.SmartSub(from, amount)
	if err != nil {
		return nil, nil, err
	}

	if newTo, err = sk.SmartSelect(enough, credited, to); err != nil {
		return nil, nil, err
	}
	if newFrom, err = sk.SmartSelect(enough, debited, from); err != nil {
		return nil, nil, err
	}
	return newFrom, newTo, nil
}
